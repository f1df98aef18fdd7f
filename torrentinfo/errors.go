package torrentinfo

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a torrent could not be loaded.
type ErrorKind int

const (
	MalformedTree ErrorKind = iota + 1
	NotADictionary
	MissingInfoDictionary
	MissingPieceLength
	MissingPieces
	MisalignedHashes
	TooManyPieces
	MissingName
	InvalidName
	InvalidLength
	NoFiles
	InvalidPathList
	InvalidHashes
	InvalidSymlink
	IoFailure
)

var kindText = map[ErrorKind]string{
	MalformedTree:         "invalid bencoding",
	NotADictionary:        "torrent file does not contain a dictionary",
	MissingInfoDictionary: "missing or invalid 'info' section in torrent file",
	MissingPieceLength:    "missing or invalid 'piece length' entry in torrent file",
	MissingPieces:         "missing or invalid 'pieces' entry in torrent file",
	MisalignedHashes:      "'pieces' length is not a multiple of the hash size",
	TooManyPieces:         "torrent has too many pieces",
	MissingName:           "missing or invalid 'name' entry in torrent file",
	InvalidName:           "invalid file name in torrent file",
	InvalidLength:         "invalid length of torrent",
	NoFiles:               "no files in torrent",
	InvalidPathList:       "missing or invalid 'path' entry in torrent file",
	InvalidHashes:         "number of piece hashes does not match the content size",
	InvalidSymlink:        "invalid symlink in torrent file",
	IoFailure:             "failed to read torrent file",
}

var kindNames = map[ErrorKind]string{
	MalformedTree:         "malformed_tree",
	NotADictionary:        "not_a_dictionary",
	MissingInfoDictionary: "missing_info_dictionary",
	MissingPieceLength:    "missing_piece_length",
	MissingPieces:         "missing_pieces",
	MisalignedHashes:      "misaligned_hashes",
	TooManyPieces:         "too_many_pieces",
	MissingName:           "missing_name",
	InvalidName:           "invalid_name",
	InvalidLength:         "invalid_length",
	NoFiles:               "no_files",
	InvalidPathList:       "invalid_path_list",
	InvalidHashes:         "invalid_hashes",
	InvalidSymlink:        "invalid_symlink",
	IoFailure:             "io_failure",
}

// String returns a stable snake_case identifier, suitable for API payloads.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Error is the only error type returned by Parse and Load.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	text := kindText[e.Kind]
	if text == "" {
		text = e.Kind.String()
	}
	if e.Msg != "" {
		text += ": " + e.Msg
	}
	if e.Err != nil {
		text += ": " + e.Err.Error()
	}
	return text
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNoFiles)
// works regardless of the attached message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrMalformedTree         = &Error{Kind: MalformedTree}
	ErrNotADictionary        = &Error{Kind: NotADictionary}
	ErrMissingInfoDictionary = &Error{Kind: MissingInfoDictionary}
	ErrMissingPieceLength    = &Error{Kind: MissingPieceLength}
	ErrMissingPieces         = &Error{Kind: MissingPieces}
	ErrMisalignedHashes      = &Error{Kind: MisalignedHashes}
	ErrTooManyPieces         = &Error{Kind: TooManyPieces}
	ErrMissingName           = &Error{Kind: MissingName}
	ErrInvalidName           = &Error{Kind: InvalidName}
	ErrInvalidLength         = &Error{Kind: InvalidLength}
	ErrNoFiles               = &Error{Kind: NoFiles}
	ErrInvalidPathList       = &Error{Kind: InvalidPathList}
	ErrInvalidHashes         = &Error{Kind: InvalidHashes}
	ErrInvalidSymlink        = &Error{Kind: InvalidSymlink}
	ErrIoFailure             = &Error{Kind: IoFailure}
)

// ErrOutOfRange is returned by the layout mapping functions.
var ErrOutOfRange = errors.New("offset out of range")

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of a torrentinfo error, or 0 if err is not one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
