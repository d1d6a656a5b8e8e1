package lock

import "testing"

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{
			name: "identical recursive patterns",
			a:    "app/api/**",
			b:    "app/api/**",
			want: true,
		},
		{
			name: "nested scope collides with parent scope",
			a:    "app/api/**",
			b:    "app/api/profile/**",
			want: true,
		},
		{
			name: "parent scope collides with nested scope",
			a:    "app/api/profile/**",
			b:    "app/api/**",
			want: true,
		},
		{
			name: "sibling scopes do not collide",
			a:    "app/api/**",
			b:    "app/web/**",
			want: false,
		},
		{
			name: "literal path under recursive pattern",
			a:    "app/api/**",
			b:    "app/api/users.go",
			want: true,
		},
		{
			name: "literal path outside recursive pattern",
			a:    "app/api/**",
			b:    "docs/readme.md",
			want: false,
		},
		{
			name: "distinct literal paths",
			a:    "app/api/users.go",
			b:    "app/api/orders.go",
			want: false,
		},
		{
			name: "directory contains literal file",
			a:    "app/api",
			b:    "app/api/users.go",
			want: true,
		},
		{
			name: "mid-pattern wildcards over-approximate",
			a:    "app/*/handlers.go",
			b:    "app/*/models.go",
			want: true,
		},
		{
			name: "leading wildcard collides with everything",
			a:    "**/*.go",
			b:    "docs/guide.md",
			want: true,
		},
		{
			name: "dot-slash prefix is ignored",
			a:    "./app/api/**",
			b:    "app/api/auth/**",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.a, tt.b); got != tt.want {
				t.Errorf("Overlaps(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			// Overlap is symmetric.
			if got := Overlaps(tt.b, tt.a); got != tt.want {
				t.Errorf("Overlaps(%q, %q) = %v, want %v", tt.b, tt.a, got, tt.want)
			}
		})
	}
}
