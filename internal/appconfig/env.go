package appconfig

import "os"

// Indirections so tests can observe environment writes.
var (
	lookupEnv = os.LookupEnv
	setEnv    = os.Setenv
)
