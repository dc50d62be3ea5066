//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int checkMicrophonePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestMicrophonePermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

import "github.com/cpeters/audioscope/internal/audioerr"

const (
	statusNotDetermined = 0
	statusRestricted    = 1
	statusDenied        = 2
	statusAuthorized    = 3
)

// CheckMicrophone returns the current microphone authorization status.
func CheckMicrophone() int {
	return int(C.checkMicrophonePermission())
}

// RequestMicrophone triggers the system microphone permission dialog. The
// prompt UI itself belongs to the OS; this only surfaces the request.
func RequestMicrophone() {
	C.requestMicrophonePermission()
}

// EnsureMicrophone verifies microphone access, requesting it when the user
// has not decided yet. A denial surfaces as a permission_denied error.
func EnsureMicrophone() error {
	switch CheckMicrophone() {
	case statusAuthorized:
		return nil
	case statusNotDetermined:
		RequestMicrophone()
		return audioerr.New(audioerr.KindPermissionDenied, "microphone permission not yet granted")
	default:
		return audioerr.New(audioerr.KindPermissionDenied, "microphone permission denied")
	}
}
