package env

import (
	"context"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/keboola/go-barrier/internal/pkg/log"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

// LoadDotEnv loads envs from ".env" files if they exist. Existing envs take precedence.
func LoadDotEnv(ctx context.Context, logger log.Logger, osEnvs *Map, dirs []string) *Map {
	envs := FromMap(osEnvs.ToMap()) // copy

	for _, dir := range dirs {
		for _, file := range Files() {
			path := filepath.Join(dir, file)
			info, err := os.Stat(path)
			switch {
			case err == nil && info.IsDir():
				continue
			case err != nil && os.IsNotExist(err):
				continue
			case err != nil:
				logger.Warnf(ctx, `Cannot check if path "%s" exists: %s`, path, err)
				continue
			}

			fileEnvs, err := LoadEnvFile(path)
			if err != nil {
				logger.Warn(ctx, err.Error())
				continue
			}
			logger.Infof(ctx, `Loaded env file "%s".`, path)

			// Merge ENVs, existing keys take precedence.
			envs.Merge(fileEnvs, false)
		}
	}

	return envs
}

func LoadEnvFile(path string) (*Map, error) {
	envsMap, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot read env file "%s"`, path)
	}
	return FromMap(envsMap), nil
}

func LoadEnvString(str string) (*Map, error) {
	envsMap, err := godotenv.Unmarshal(str)
	if err != nil {
		return nil, err
	}

	return FromMap(envsMap), nil
}
