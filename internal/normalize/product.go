package normalize

// Product categories reported on the evaluated lines.
const (
	CategoryBankLoan   = "Empréstimo bancário"
	CategoryCreditCard = "Cartão de crédito"
)

// ProductMap maps slugified financial-product names to standard categories.
type ProductMap map[string]string

// DefaultProductMap returns the standard product-category table. The slugs
// are the known product names printed on "Mapa de Responsabilidades" reports;
// there is no derivable rule behind them.
func DefaultProductMap() ProductMap {
	return ProductMap{
		"creditorenovavellinhadecredito":                    CategoryBankLoan,
		"cartaodecreditosemperiododefreefloat":              CategoryCreditCard,
		"creditoautomovelexcluindolocacoesfinanceiras":      CategoryBankLoan,
		"creditopessoal":                                    CategoryBankLoan,
		"cartaodecreditocomperiododefreefloat":              CategoryCreditCard,
		"ultrapassagensdecredito":                           CategoryCreditCard,
		"cartaodecredito":                                   CategoryCreditCard,
		"locacaofinanceiramobiliaria":                       CategoryBankLoan,
		"creditoconexo":                                     CategoryBankLoan,
		"outroscreditos":                                    CategoryBankLoan,
		"cartaodecreditocartaodedebitodiferido":             CategoryCreditCard,
		"creditonaorenovavel":                               CategoryBankLoan,
		"creditorenovavelcontacorrentebancaria":             CategoryBankLoan,
		"facilidadesdedescoberto":                           CategoryBankLoan,
		"financiamentoaatividadeempresarial":                CategoryBankLoan,
		"locacaofinanceiraimobiliaria":                      CategoryBankLoan,
		"outrosavalesegarantiasbancariasprestadas":          CategoryBankLoan,
		"descontoeoutroscreditostituladosporefeitos":        CategoryBankLoan,
		"factoring":                                         CategoryBankLoan,
		"creditoahabitacao":                                 CategoryBankLoan,
		"facilidadesdedescobertocomdomiciliacaodeordenadoe": CategoryBankLoan,
	}
}

// Category returns the standard category for a free-text product name, or ""
// when the product is unknown.
func (m ProductMap) Category(productName string) string {
	return m[Slugify(productName)]
}
