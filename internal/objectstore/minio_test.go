package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectName(t *testing.T) {
	s := &MinioSink{bucket: "records", prefix: "bundles/"}
	assert.Equal(t, "bundles/439.json", s.ObjectName("439"))
	assert.Equal(t, "bundles/a_b.json", s.ObjectName("a/b"))

	bare := &MinioSink{bucket: "records"}
	assert.Equal(t, "UKB003E-1.json", bare.ObjectName("UKB003E-1"))
}
