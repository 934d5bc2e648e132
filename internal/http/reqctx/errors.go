package reqctx

import "errors"

var errNoAuthProvider = errors.New("no auth provider configured")
