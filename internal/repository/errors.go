package repository

import "errors"

// ErrJournalDisabled is returned by reads when no database is configured
var ErrJournalDisabled = errors.New("order journal disabled")
