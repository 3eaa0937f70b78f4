// Package services implements the clients for the external download service.
//
// # Lifecycle Client
//
// [DownloadService] implements [JobClient] on top of [APIService]:
//   - Start : POST /download with {spotify_link, async: true}, returns the job id
//   - Cancel : POST /download/cancel with {job_id} or {link}, idempotent
//   - PollStatus : GET /download/jobs/{job_id}
//
// # Push Stream
//
// [ProgressStream] implements [FrameSource]. It opens one GET /progress/stream connection per
// subscription, scoped to a job (job_id query parameter) or to the whole account.
// A dropped connection is reported once and never reopened automatically.
//
// # Normalization
//
// Producers disagree on field names. [NormalizeFrame] is the only place that knows about the
// variants (song_id / spotify_url / song_display_name / song_name for identity, song_progress /
// progress, song_status / status); everything downstream sees [models.Frame].
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrSubmission] : job could not be created
//   - [shared.ErrCancel] : cancel request did not reach the service
//   - [shared.ErrTransientPoll] : one status poll failed
//   - [shared.ErrStreamUnavailable] : push connection failed or closed
//   - [shared.ErrMalformedFrame] : one payload could not be parsed
package services
