package s3io

import (
	"fmt"
	"net/http"
)

type ErrPermissionsTooOpen struct {
	msg string
}

func (e *ErrPermissionsTooOpen) Error() string {
	return e.msg
}

type ErrNoRecipients struct{}

func (e *ErrNoRecipients) Error() string {
	return "unable to encrypt: no recipients, expected in bucket at '" + recipientsKey + "'"
}

type ErrNoSecretsFound struct {
	file string
}

func (e *ErrNoSecretsFound) Error() string {
	return fmt.Sprintf("no secrets found in '%s'", e.file)
}

type ErrPassphraseNotFound struct {
	operation string
}

func (e *ErrPassphraseNotFound) Error() string {
	return fmt.Sprintf("unable to %s: passphrase not found", e.operation)
}

type ErrIdentitiesNotFound struct{}

func (e *ErrIdentitiesNotFound) Error() string {
	return "unable to decrypt: no identities available"
}

type ErrNoSuchObject struct {
	key string
}

func (e *ErrNoSuchObject) Error() string {
	return fmt.Sprintf("no such object in bucket: %s", e.key)
}

// TransportStatus lets the job engine report a missing object like an HTTP 404.
func (e *ErrNoSuchObject) TransportStatus() int {
	return http.StatusNotFound
}

type ErrNoMatch struct {
	msg string
}

func (e *ErrNoMatch) Error() string {
	return e.msg
}

type ErrNotDownloadable struct {
	key          string
	storageClass string
}

func (e *ErrNotDownloadable) Error() string {
	return fmt.Sprintf("object %s is not downloadable: storage class is %s", e.key, e.storageClass)
}

// ErrUnknownSize reports an encoded object uploaded without its plain size.
type ErrUnknownSize struct {
	key string
}

func (e *ErrUnknownSize) Error() string {
	return fmt.Sprintf("object %s has no recorded size", e.key)
}
