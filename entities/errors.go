package entities

import "errors"

var ErrTransientFetch = errors.New("transient fetch error")
var ErrMalformedRecord = errors.New("malformed transaction record")

// notification channel
var ErrConnection = errors.New("notification connection error")
var ErrSubscription = errors.New("notification subscription error")
