/*
Package restapi implements §6's HTTP/REST surface for the UI: submit a
MasterAction, read its current snapshot, and request cancellation. It
is the only consumer-facing adapter the core ships; JWT auth and TLS
termination are explicit Non-goals and are expected to sit in front of
this router (a reverse proxy, per spec.md §1).

Routing uses github.com/go-chi/chi/v5, following the chi idiom the
retrieved pack reaches for (jordigilh-kubernaut) where the teacher's own
pkg/api is gRPC-only and has nothing comparable to adapt.
*/
package restapi
