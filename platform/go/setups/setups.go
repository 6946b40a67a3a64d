package setups

import "os"

const (
	// DevCredentialsPathEnv points at a service account file for local runs.
	DevCredentialsPathEnv = "FIREBASE_CONFIG"
	// DevProjectEnv overrides the project picked up from ADC.
	DevProjectEnv = "GCLOUD_PROJECT"
)

// CredentialsFile returns the explicit credentials file, if any. Without one, ADC is used.
func CredentialsFile() (string, bool) {
	path, ok := os.LookupEnv(DevCredentialsPathEnv)
	if !ok || path == "" {
		return "", false
	}
	return path, true
}
