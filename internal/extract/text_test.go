package extract

import "testing"

func TestRepairBrokenWords(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		// Fragment glued back onto the preceding word.
		{"Подтверждени е", "Подтверждение"},
		{"Контрол ь качества детал ей", "Контроль качества деталей"},
		// Genuine short words keep their space.
		{"операции и контроль", "операции и контроль"},
		{"связь а также союз", "связь а также союз"},
		{"отправка на склад", "отправка на склад"},
		{"выход из цикла", "выход из цикла"},
		// Nothing to do.
		{"Review", "Review"},
		{"", ""},
		// Punctuation blocks the merge.
		{"готово. ок", "готово. ок"},
	}
	for _, c := range cases {
		if got := RepairBrokenWords(c.in); got != c.want {
			t.Errorf("RepairBrokenWords(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCleanHTMLLabel(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{"  spaced   out  ", "spaced out"},
		{"<div><b>Проверка</b></div>", "Проверка"},
		{"строка&nbsp;раз<br>строка два", "строка раз строка два"},
		{"<font color=\"red\">Этап 1</font>", "Этап 1"},
	}
	for _, c := range cases {
		if got := CleanHTMLLabel(c.in); got != c.want {
			t.Errorf("CleanHTMLLabel(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
