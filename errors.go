package jobmanager

import "errors"

var errUnsupportedIDType = errors.New("jobmanager: id type is not string, cannot be read from a URL path")
