package violation

import "testing"

func TestValidatePlate(t *testing.T) {
	accepted := []string{
		"鄂A12345",
		"京B88888",
		"粤Z12345港",
		"鄂A1234警",
		"鄂A1234学",
		"使123456",
		"WJ123456",
		"鄂AD12345", // 新能源
		" 鄂a12345 ", // 大小写与空格归一化
	}
	for _, plate := range accepted {
		if !ValidatePlate(plate) {
			t.Errorf("expected plate %q accepted", plate)
		}
	}

	rejected := []string{
		"",
		"12345",
		"鄂12345",
		"鄂A123",
		"<script>alert(1)</script>",
		"鄂A'12345",
		"ABC鄂12345",
		"WJ12",
		"WJ1234567", // 9位，武警牌上限8位
		"粤Z1234港",  // 港澳牌字母后需5位
	}
	for _, plate := range rejected {
		if ValidatePlate(plate) {
			t.Errorf("expected plate %q rejected", plate)
		}
	}
}

func TestValidViolationType(t *testing.T) {
	for _, vt := range ValidViolationTypes {
		if !ValidViolationType(vt) {
			t.Errorf("expected type %q valid", vt)
		}
	}
	if ValidViolationType("随意编造") {
		t.Errorf("expected unknown type rejected")
	}
	if ValidViolationType("") {
		t.Errorf("expected empty type rejected")
	}
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"武汉市江汉区解放大道", "武汉市江汉区解放大道"},
		{"<b>解放大道</b>", "解放大道"},
		{`he said "hi" <x>`, "he said hi"},
		{"  padded  ", "padded"},
	}
	for _, c := range cases {
		if got := Sanitize(c.in); got != c.want {
			t.Errorf("Sanitize(%q) = %q, want %q", c.in, got, c.want)
		}
	}

	long := make([]rune, 600)
	for i := range long {
		long[i] = '路'
	}
	if got := Sanitize(string(long)); len([]rune(got)) != 500 {
		t.Errorf("expected sanitize to cap at 500 runes, got %d", len([]rune(got)))
	}
}

func TestParseViolationTime(t *testing.T) {
	for _, in := range []string{"2024-01-15T09:30:00", "2024-01-15T09:30", "2024-01-15 09:30:00"} {
		got, ok := ParseViolationTime(in)
		if !ok {
			t.Fatalf("expected %q to parse", in)
		}
		if got.Year() != 2024 || got.Month() != 1 || got.Day() != 15 || got.Hour() != 9 || got.Minute() != 30 {
			t.Fatalf("unexpected parse of %q: %v", in, got)
		}
	}

	for _, in := range []string{"", "not-a-time", "2024/01/15"} {
		if _, ok := ParseViolationTime(in); ok {
			t.Errorf("expected %q to fail", in)
		}
	}
}
