package provider

import "os"

func defaultLookupEnv(name string) string {
	return os.Getenv(name)
}
