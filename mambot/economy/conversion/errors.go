package conversion

import "errors"

var (
	ErrUncraftable           = errors.New("printing is not craftable")
	ErrUnfragmentable        = errors.New("printing is not fragmentable")
	ErrInsufficientShards    = errors.New("insufficient shards")
	ErrUnknownOverrideTarget = errors.New("no override matches the target")
	ErrInvalidExchange       = errors.New("invalid shard exchange")
)
