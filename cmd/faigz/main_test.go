package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scttfrdmn/faigz-go/pkg/faidx"
)

func TestS3RegionFlag(t *testing.T) {
	flags := rootCmd.PersistentFlags()
	require.NotNil(t, flags.Lookup("s3-region"))
	assert.Nil(t, flags.Lookup("region"))

	path := filepath.Join(t.TempDir(), "faigz.yaml")
	require.NoError(t, os.WriteFile(path, []byte("s3_region: eu-west-1\n"), 0644))
	c, err := faidx.LoadConfig(path)
	require.NoError(t, err)

	saved := fileConfig
	t.Cleanup(func() {
		fileConfig = saved
		s3Region = ""
	})
	fileConfig = c

	opts, err := loadOptions()
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", opts.S3Region)

	require.NoError(t, flags.Parse([]string{"--s3-region", "us-west-2"}))
	opts, err = loadOptions()
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", opts.S3Region)
}
