package bot

import "errors"

// ErrUnauthorized is reported when a non-admin runs a restricted command.
var ErrUnauthorized = errors.New("bot: sender is not the administrator")
