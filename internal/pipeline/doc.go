// Package pipeline implements the authenticated request pipeline that every
// ITSM API call goes through.
//
// A call flows through these steps:
//
//  1. Snapshot the credentials and compute the Authorization, X-Tenant-ID,
//     X-Tenant-Code and X-Request-Id headers. Caller headers win.
//  2. Transcode plain request bodies from application case to wire case.
//  3. Send through the transport selected for the request, bounded by the
//     request or client timeout.
//  4. On 401, renew the token through the single-flight refresher and
//     retry exactly once.
//  5. Map non-2xx statuses, malformed envelopes and non-zero envelope codes
//     to *apierr.APIError.
//  6. Transcode the envelope data back to application case.
//
// Blob requests skip the envelope handling in steps 5 and 6 and return the
// body bytes untouched.
package pipeline
