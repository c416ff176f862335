package storage

// Package storage provides the namespaced key-value store used by plugins
// for configuration and state durability.
//
// Every plugin persists a whole JSON document under (namespace, key); writes
// overwrite the previous document. Mutation frequency is human-driven, so no
// journal is kept.
