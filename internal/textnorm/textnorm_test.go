package textnorm

import "testing"

func TestNoAccent(t *testing.T) {
	cases := map[string]string{
		"Hà Nội":                "Ha Noi",
		"Đà Nẵng":               "Da Nang",
		"Thành phố Hồ Chí Minh": "Thanh pho Ho Chi Minh",
		"1 tháng":               "1 thang",
		"Bắc Giang":             "Bac Giang",
		"plain":                 "plain",
	}
	for in, want := range cases {
		if got := NoAccent(in); got != want {
			t.Fatalf("NoAccent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"1 tháng":      "1_thang",
		"  12 Tháng ":  "12_thang",
		"Không kỳ hạn": "khong_ky_han",
		"USD":          "usd",
		"":             "",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}
