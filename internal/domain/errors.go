package domain

import "errors"

var (
	// ErrStorageUnavailable is returned when the key-value store cannot serve a get, set or list.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrMalformedRecord indicates a stored value could not be decoded into the expected record.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrAuthenticationFailed is returned when the identity provider yields no profile.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrInvariantViolation marks internal consistency failures such as a question with duplicate usernames.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrNotAuthenticated is returned when a session is started without a signed-in player.
	ErrNotAuthenticated = errors.New("player not authenticated")
	// ErrInvalidTransition is returned when an operation is not allowed on the current screen.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrAlreadyResolved is returned when the current question already has an answer or timeout.
	ErrAlreadyResolved = errors.New("question already resolved")
	// ErrUnknownChoice indicates the submitted username is not one of the question's choices.
	ErrUnknownChoice = errors.New("choice not offered for this question")
	// ErrInvalidQuestionLimit indicates a question limit that is neither endless nor positive.
	ErrInvalidQuestionLimit = errors.New("invalid question limit")
	// ErrInvalidMode indicates an unknown game mode.
	ErrInvalidMode = errors.New("invalid game mode")
	// ErrInvalidSettings indicates a settings value outside the allowed choices.
	ErrInvalidSettings = errors.New("invalid settings")
	// ErrNoProfiles is returned when the profile directory cannot supply enough distinct profiles.
	ErrNoProfiles = errors.New("not enough profiles for a question")
	// ErrPlayerNotFound is returned when no controller is registered for a player.
	ErrPlayerNotFound = errors.New("player not found")
)
