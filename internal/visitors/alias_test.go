package visitors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"metalise/internal/visitors"
)

func TestVisitorAlias(t *testing.T) {
	t.Run("same fingerprint gives the same alias", func(t *testing.T) {
		fingerprint := visitors.BuildVisitorFingerprint("1.2.3.4")
		assert.Equal(t, visitors.VisitorAlias(fingerprint), visitors.VisitorAlias(fingerprint))
	})

	t.Run("alias is two capitalized words", func(t *testing.T) {
		for _, ip := range []string{"1.2.3.4", "5.6.7.8", "", "2001:db8::1"} {
			alias := visitors.VisitorAlias(visitors.BuildVisitorFingerprint(ip))
			assert.Regexp(t, `^[A-Z][a-z]+ [A-Z][a-z]+$`, alias, "ip %q", ip)
		}
	})

	t.Run("aliases are spread out", func(t *testing.T) {
		aliases := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			aliases[visitors.VisitorAlias(string(rune(i)))] = true
		}
		assert.Greater(t, len(aliases), 100)
	})

	t.Run("alias does not contain the fingerprint", func(t *testing.T) {
		fingerprint := visitors.BuildVisitorFingerprint("1.2.3.4")
		assert.NotContains(t, visitors.VisitorAlias(fingerprint), fingerprint[:8])
	})
}
