// Package rbac implements role-based access control: roles, the grant
// edges tying roles to catalog permissions, the membership edges tying
// users to roles, and the resolver that folds both into a user's
// effective permission set.
//
// Edge operations are idempotent. Granting an edge that already exists
// or revoking one that never did is reported as "no change" rather
// than an error, so callers can retry safely. Retirement never deletes
// edges; a retired role or permission simply stops contributing until
// it is reactivated.
package rbac
