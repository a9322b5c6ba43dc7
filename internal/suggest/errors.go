package suggest

import "errors"

var (
	ErrProviderUnavailable = errors.New("suggestion provider unavailable")
	ErrSuggestionTimeout   = errors.New("suggestion request timed out")
	ErrInvalidResponse     = errors.New("suggestion provider returned invalid response")
)
