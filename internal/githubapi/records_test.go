package githubapi

import "testing"

func TestAuthor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		author    Author
		wantLogin string
		wantKnown bool
		wantKey   string
	}{
		{name: "known", author: KnownAuthor("alice"), wantLogin: "alice", wantKnown: true, wantKey: "alice"},
		{name: "unknown", author: UnknownAuthor(), wantKey: UnknownLogin},
		{name: "zero_value_is_unknown", author: Author{}, wantKey: UnknownLogin},
		{name: "empty_login_is_unknown", author: KnownAuthor(""), wantKey: UnknownLogin},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			login, known := tc.author.Login()
			if login != tc.wantLogin || known != tc.wantKnown {
				t.Fatalf("Login() = (%q, %t), want (%q, %t)", login, known, tc.wantLogin, tc.wantKnown)
			}
			if got := tc.author.Key(); got != tc.wantKey {
				t.Fatalf("Key() = %q, want %q", got, tc.wantKey)
			}
		})
	}
}
