// ABOUTME: Sentinel errors for the source package
// ABOUTME: Callers match these with errors.Is
package source

import "errors"

// ErrUnsupportedFormat is returned for file extensions no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported audio format")
