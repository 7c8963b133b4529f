// SPDX-License-Identifier: MIT

// Package event models object-storage notifications and the path
// conventions that tie uploads to sessions.
package event

import (
	"strings"
)

// ObjectFinalize is the only event type the worker processes.
const ObjectFinalize = "OBJECT_FINALIZE"

// StorageObject is a decoded object-change notification.
type StorageObject struct {
	EventType string
	Bucket    string
	Name      string
}

// IsFinalize reports whether the notification announces a completed upload.
func (e StorageObject) IsFinalize() bool {
	return e.EventType == ObjectFinalize
}

// VideoRef identifies a source upload under the videos prefix.
type VideoRef struct {
	ICDKey      string
	UploadEpoch string // leading numeric segment of the filename, empty when absent
	Filename    string
}

// ParseVideoPath splits an object name of the form
// <videosPrefix>/<icdKey>/<epoch>-<safeName> into its parts. The second
// return is false when the object is not under the prefix or lacks the
// expected two trailing components.
func ParseVideoPath(objectName, videosPrefix string) (VideoRef, bool) {
	prefix := strings.Trim(videosPrefix, "/")
	name := strings.TrimPrefix(objectName, "/")
	if prefix == "" || !strings.HasPrefix(name, prefix+"/") {
		return VideoRef{}, false
	}
	rest := strings.TrimPrefix(name, prefix+"/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return VideoRef{}, false
	}
	if strings.Contains(parts[1], "/") {
		return VideoRef{}, false
	}
	return VideoRef{
		ICDKey:      parts[0],
		UploadEpoch: leadingDigits(parts[1]),
		Filename:    parts[1],
	}, true
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}
