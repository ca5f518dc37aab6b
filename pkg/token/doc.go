// Package token implements a username/token authentication strategy.
//
// A Strategy pulls a username and a token out of a request, looking at
// headers first, then the decoded body, then the query string. When both
// are present it hands them to an application-supplied Verifier and turns
// the verifier's completion into exactly one Outcome:
//
//   - Authenticated: the verifier returned a user.
//   - Rejected: the verifier declined, or a credential was missing
//     (Info is then a *BadRequestError).
//   - Errored: the verifier reported a failure.
//
// The strategy keeps no state between calls; a single Strategy may serve
// any number of concurrent requests.
package token
