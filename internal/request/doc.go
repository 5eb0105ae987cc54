// Package request implements the async request lifecycle shared by every
// feature that talks to the remote API.
//
// A Request is one call-site. Each Execute supersedes the previous one: the
// older call's context is cancelled and its result, whenever it arrives, is
// discarded without touching state or firing callbacks. Supersession is
// tracked with a per call-site generation counter compared at resolution.
package request
