package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeCredential struct{}

func (fakeCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: "t0k3n", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

const containersPage = `<?xml version="1.0" encoding="utf-8"?>
<EnumerationResults ServiceEndpoint="%s/">
  <Containers>%s</Containers>%s
</EnumerationResults>`

func containerXML(names ...string) string {
	out := ""
	for _, name := range names {
		out += fmt.Sprintf("<Container><Name>%s</Name></Container>", name)
	}

	return out
}

func TestBlobStoreListContainers(t *testing.T) {
	Convey("Considering a storage account serving two pages of containers", t, func(c C) {
		var server *httptest.Server
		server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.So(r.Header.Get("Authorization"), ShouldEqual, "Bearer t0k3n")
			c.So(r.URL.Query().Get("comp"), ShouldEqual, "list")

			w.Header().Set("Content-Type", "application/xml")

			switch r.URL.Query().Get("marker") {
			case "":
				_, _ = fmt.Fprintf(w, containersPage, server.URL, containerXML("logs", "images"), "<NextMarker>page-2</NextMarker>")
			default:
				_, _ = fmt.Fprintf(w, containersPage, server.URL, containerXML("backups"), "")
			}
		}))
		defer server.Close()

		identity := NewIdentity(fakeCredential{}, server.Client())

		Convey("When listing the containers", func() {
			store, err := identity.BlobStore(server.URL)
			So(err, ShouldBeNil)

			names, err := store.ListContainers(context.Background())

			Convey("Then all the pages shall be walked through", func() {
				So(err, ShouldBeNil)
				So(names, ShouldResemble, []string{"logs", "images", "backups"})
			})
		})
	})

	Convey("Considering a storage account denying the access", t, func(c C) {
		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/xml")
			w.Header().Set("x-ms-error-code", "AuthorizationPermissionMismatch")
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="utf-8"?><Error><Code>AuthorizationPermissionMismatch</Code><Message>This request is not authorized to perform this operation using this permission.</Message></Error>`)
		}))
		defer server.Close()

		identity := NewIdentity(fakeCredential{}, server.Client())

		Convey("When listing the containers", func() {
			store, err := identity.BlobStore(server.URL)
			So(err, ShouldBeNil)

			_, err = store.ListContainers(context.Background())

			Convey("Then the service error shall be reported", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldEqual, "AuthorizationPermissionMismatch (403)")

				var serviceErr *ServiceError
				So(errors.As(err, &serviceErr), ShouldBeTrue)
				So(serviceErr.StatusCode, ShouldEqual, http.StatusForbidden)

				var respErr *azcore.ResponseError
				So(errors.As(err, &respErr), ShouldBeTrue)
			})
		})
	})
}

func TestIdentitySecretStore(t *testing.T) {
	Convey("Given an identity", t, func(c C) {
		identity := NewIdentity(fakeCredential{}, NewTransport())

		Convey("When building a secret store", func() {
			store, err := identity.SecretStore("https://your-keyvault.vault.azure.net/")

			Convey("Then a Key Vault client shall be returned", func() {
				So(err, ShouldBeNil)
				So(store, ShouldHaveSameTypeAs, &SecretStore{})
			})
		})

		Convey("When fetching a secret from a vault reached without TLS", func() {
			store, err := identity.SecretStore("http://127.0.0.1:1/")
			So(err, ShouldBeNil)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_, err = store.GetSecret(ctx, "sample-secret")

			Convey("Then the access shall fail, not the construction", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestDescribe(t *testing.T) {
	Convey("Considering the describe() function", t, func(c C) {
		Convey("When describing a service error", func() {
			err := describe(&azcore.ResponseError{ErrorCode: "SecretNotFound", StatusCode: http.StatusNotFound})

			Convey("Then it shall be shortened to its code and status", func() {
				So(err.Error(), ShouldEqual, "SecretNotFound (404)")
			})
		})

		Convey("When describing a transport error", func() {
			cause := errors.New("dial tcp: lookup your-keyvault.vault.azure.net: no such host")
			err := describe(cause)

			Convey("Then it shall be kept as is", func() {
				So(err, ShouldEqual, cause)
			})
		})
	})
}
