// Package storage provides the durable key-value store backing the session
// record. Values are opaque byte snapshots; readers tolerate concurrent
// external modification by treating every Get as a plain snapshot read.
package storage

import "context"

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
