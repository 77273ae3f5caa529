package managedfn

type ctxKey string

var (
	ctxKeyValidate    = ctxKey("validate")
	ctxKeyConfig      = ctxKey("config")
	ctxKeyIdentity    = ctxKey("identity")
	ctxKeySecretStore = ctxKey("secret-store")
	ctxKeyBlobStore   = ctxKey("blob-store")
	ctxKeyPayload     = ctxKey("payload")
)
