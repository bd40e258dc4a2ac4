package textutil

import "testing"

func TestCleanText(t *testing.T) {
	cases := []struct{ in, want string }{
		{in: "  Calle 10 # 5-20  ", want: "Calle 10 # 5-20"},
		{in: "<b>Ana</b> <script>alert(1)</script>", want: "Ana"},
		{in: "Apto\t\n 301", want: "Apto 301"},
		{in: "Ｂogotá", want: "Bogotá"},
		{in: "Tom & Jerry", want: "Tom & Jerry"},
	}
	for _, tc := range cases {
		if got := CleanText(tc.in); got != tc.want {
			t.Fatalf("CleanText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Ana.Perez@Example.COM "); got != "ana.perez@example.com" {
		t.Fatalf("unexpected email %q", got)
	}
}

func TestIsEmail(t *testing.T) {
	valid := []string{"a@b.co", "ana.perez+shop@example.com"}
	invalid := []string{"", "ana", "ana@example", "ana @example.com", "@example.com"}
	for _, v := range valid {
		if !IsEmail(v) {
			t.Fatalf("expected %q to be valid", v)
		}
	}
	for _, v := range invalid {
		if IsEmail(v) {
			t.Fatalf("expected %q to be invalid", v)
		}
	}
}

func TestNormalizeStringMap(t *testing.T) {
	got := NormalizeStringMap(map[string]string{" type ": " order.created ", "": "x", "status": " "})
	if len(got) != 1 || got["type"] != "order.created" {
		t.Fatalf("unexpected map %#v", got)
	}
	if NormalizeStringMap(map[string]string{"": ""}) != nil {
		t.Fatalf("expected nil map")
	}
}
