package feed

func goldPair(label, suffix string) Line {
	return Line{Label: label, Parts: []Part{
		{Label: "Mua", Field: "buy_" + suffix},
		{Label: "Bán", Field: "sell_" + suffix},
	}}
}

func goldFields(suffixes ...string) []string {
	out := make([]string, 0, len(suffixes)*2)
	for _, s := range suffixes {
		out = append(out, "buy_"+s, "sell_"+s)
	}
	return out
}

var rateLines = []Line{
	{Parts: []Part{{Label: "Mua tiền mặt", Field: "buy_cash"}}},
	{Parts: []Part{{Label: "Mua chuyển khoản", Field: "buy_transfer"}}},
	{Parts: []Part{{Label: "Bán", Field: "sell"}}},
}

func exchangeRate(name, bank string) Definition {
	return Definition{
		Scope:      ScopeExchangeRate,
		Name:       name,
		Kind:       Grouped,
		GroupField: "currency",
		Fields:     []string{"buy_cash", "buy_transfer", "sell"},
		Template:   Template{Title: "vPrice - Biến động tỷ giá " + bank, Lines: rateLines, Places: 2},
	}
}

// Builtin returns the definitions of every static feed.
func Builtin() []Definition {
	return []Definition{
		{
			Scope:  ScopeGold,
			Name:   "sjc",
			Fields: goldFields("1l", "1c", "nhan1c", "trangsuc49"),
			Template: Template{
				Title: "vPrice - Biến động giá SJC",
				Lines: []Line{
					goldPair("1L", "1l"),
					goldPair("1c", "1c"),
					goldPair("Trang sức", "trangsuc49"),
				},
			},
		},
		{
			Scope:  ScopeGold,
			Name:   "doji",
			Fields: goldFields("hcm", "hn", "dn", "ct"),
			Template: Template{
				Title: "vPrice - Biến động giá DOJI",
				Lines: []Line{
					goldPair("HCM", "hcm"),
					goldPair("HN", "hn"),
					goldPair("ĐN", "dn"),
					goldPair("CT", "ct"),
				},
			},
		},
		{
			Scope:  ScopeGold,
			Name:   "pnj",
			Fields: goldFields("hcm", "hn"),
			Template: Template{
				Title: "vPrice - Biến động giá PNJ",
				Lines: []Line{
					goldPair("HCM", "hcm"),
					goldPair("HN", "hn"),
				},
			},
		},
		{
			Scope:      ScopeExchangeRate,
			Name:       "sbv",
			Kind:       Grouped,
			GroupField: "currency",
			Fields:     []string{"buy", "sell"},
			Template: Template{
				Title: "vPrice - Biến động tỷ giá Ngân Hàng Nhà Nước (SBV)",
				Lines: []Line{
					{Parts: []Part{{Label: "Mua", Field: "buy"}}},
					{Parts: []Part{{Label: "Bán", Field: "sell"}}},
				},
				Places: 2,
			},
		},
		exchangeRate("vcb", "Vietcombank (VCB)"),
		exchangeRate("ctg", "Vietinbank (CTG)"),
		exchangeRate("tcb", "Techcombank (TCB)"),
		exchangeRate("bid", "BIDV"),
		exchangeRate("stb", "Sacombank (STB)"),
	}
}

// DefaultRegistry returns the registry of builtin feeds.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		panic(err)
	}
	return r
}
