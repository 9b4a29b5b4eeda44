package initializers

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvVariables loads .env (or the given files) into the process
// environment. Missing files are skipped so containers that inject variables
// directly still start; variables already set win over the file.
func LoadEnvVariables(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}
