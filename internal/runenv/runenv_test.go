package runenv

import "testing"

func TestIsNotebook(t *testing.T) {
	for _, name := range jupyterVars {
		t.Setenv(name, "")
	}
	if IsNotebook() {
		t.Error("Expected false without Jupyter variables")
	}

	t.Setenv("JPY_PARENT_PID", "4242")
	if !IsNotebook() {
		t.Error("Expected true with JPY_PARENT_PID set")
	}
}
