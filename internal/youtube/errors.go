package youtube

import "errors"

var (
	// ErrInvalidInput indicates bad arguments: a missing or empty local file,
	// an empty authorization code, or a zero-byte upload.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAuthenticationRequired indicates no credential has been stored yet and
	// the OAuth consent flow must be completed first.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrRefreshTokenUnavailable indicates the stored credential has expired
	// and carries no refresh token, so only re-authentication can recover.
	ErrRefreshTokenUnavailable = errors.New("refresh token unavailable")
	// ErrTokenRefreshFailed indicates the token endpoint rejected or failed the
	// refresh request. The in-memory credential is left unchanged.
	ErrTokenRefreshFailed = errors.New("token refresh failed")
	// ErrPersistence indicates the credential store rejected a write.
	ErrPersistence = errors.New("credential persistence failed")
	// ErrSessionInitiation indicates the upload endpoint refused to open a
	// resumable session.
	ErrSessionInitiation = errors.New("upload session initiation failed")
	// ErrUploadRejected indicates the upload endpoint permanently rejected the
	// media, or the transient retry budget was exhausted.
	ErrUploadRejected = errors.New("upload rejected")
	// ErrVideoNotFound indicates the referenced remote video does not exist.
	ErrVideoNotFound = errors.New("video not found")
)
