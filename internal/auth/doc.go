// Package auth guards the mutating endpoints of the local status server.
//
// An operator token is never stored in clear. The configuration holds its
// Argon2id hash in PHC string form:
//
//	$argon2id$v=19$m=19456,t=2,p=1$<salt>$<hash>
//
// HashToken produces such a string (see the hash-token command of
// graylogic-edge); Verifier checks presented tokens against it.
//
// # Cost
//
// The parameters are the OWASP minimum for Argon2id (19 MiB, two passes)
// so a check stays affordable on small devices. Verifier remembers the
// last accepted token so repeated requests with the same token are
// compared in constant time without rehashing.
package auth
