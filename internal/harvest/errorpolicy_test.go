package harvest

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPassThrough(t *testing.T) {
	p := NewErrorPolicy(ErrorsPassThrough)

	for _, status := range []int{200, 400, 404, 422, 503} {
		got, body := p.Classify(status, []byte("payload"))
		assert.Equal(t, status, got, "allow-listed status mirrors through")
		assert.Equal(t, []byte("payload"), body)
	}
}

func TestClassifyUnexpectedStatus(t *testing.T) {
	p := NewErrorPolicy(ErrorsPassThrough)

	status, body := p.Classify(http.StatusBadGateway, []byte("upstream exploded"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, string(body), "502")
	assert.Contains(t, string(body), "Bad Gateway")
	assert.Contains(t, string(body), "upstream exploded")
}

func TestClassifyCoercion(t *testing.T) {
	p := NewErrorPolicy(ErrorsCoerceTo200)

	for _, status := range []int{200, 404, 500, 502} {
		got, body := p.Classify(status, []byte("original body"))
		assert.Equal(t, http.StatusOK, got, "coercion mode flattens %d", status)
		assert.Equal(t, []byte("original body"), body, "backend body preserved")
	}
}
