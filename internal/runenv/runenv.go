// Package runenv inspects the environment the process runs in.
package runenv

import "os"

// jupyterVars are set by Jupyter when it launches a kernel such as gophernotes
var jupyterVars = []string{
	"JPY_PARENT_PID",
	"JPY_SESSION_NAME",
}

// IsNotebook reports whether the process is a Jupyter kernel
func IsNotebook() bool {
	for _, name := range jupyterVars {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return true
		}
	}
	return false
}
