package store

import "errors"

// ErrDuplicate is returned by Insert when killmailId already exists.
var ErrDuplicate = errors.New("killmail: duplicate killmail id")
