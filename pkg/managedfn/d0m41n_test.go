package managedfn

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPreviewSecret(t *testing.T) {
	Convey("Considering the PreviewSecret() function", t, func(c C) {
		cases := []struct {
			value    string
			expected string
		}{
			{value: "", expected: "empty"},
			{value: "a", expected: "a..."},
			{value: "0123456789", expected: "0123456789..."},
			{value: "0123456789a", expected: "0123456789..."},
			{value: strings.Repeat("x", 4096), expected: "xxxxxxxxxx..."},
			{value: "s€cr€t-välue", expected: "s€cr€t-väl..."},
		}
		for n, c := range cases {
			Convey(fmt.Sprintf("When calling function with a value of %d bytes (case %d)", len(c.value), n), func() {
				preview := PreviewSecret(c.value)

				Convey(fmt.Sprintf("Then result shall be `%s`", c.expected), func() {
					So(preview, ShouldEqual, c.expected)
				})
			})
		}
	})
}

func TestNotAccessible(t *testing.T) {
	Convey("When describing an unreachable dependency", t, func(c C) {
		status := NotAccessible(errors.New("dial tcp: lookup your-keyvault.vault.azure.net: no such host"))

		Convey("Then the error shall be prefixed", func() {
			So(status, ShouldEqual, "not accessible: dial tcp: lookup your-keyvault.vault.azure.net: no such host")
		})
	})
}

func TestNewErrorPayload(t *testing.T) {
	Convey("When building the error payload", t, func(c C) {
		payload := NewErrorPayload(errors.New("boom"))

		Convey("Then it shall describe the failure", func() {
			So(payload, ShouldResemble, ErrorPayload{
				Message: "Function execution failed",
				Error:   "boom",
				Status:  StatusError,
			})
		})
	})
}

func TestResponsePayloadMarshalZerologObject(t *testing.T) {
	Convey("Given a payload holding a secret preview", t, func(c C) {
		count := 2
		payload := &ResponsePayload{
			Status:                 StatusSuccess,
			SecretRetrieved:        SecretRetrieved,
			SecretValue:            "0123456789...",
			StorageContainersCount: &count,
			StorageStatus:          StorageAccessible,
		}

		Convey("When logging it", func() {
			out := &strings.Builder{}
			logger := zerolog.New(out)
			logger.Info().Object("payload", payload).Msg("")

			Convey("Then the preview shall not be logged", func() {
				So(out.String(), ShouldNotContainSubstring, "0123456789")
				So(out.String(), ShouldContainSubstring, `"storageContainersCount":2`)
			})
		})
	})
}
