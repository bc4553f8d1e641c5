package classify

import "regexp"

// TaxonomyVersion stamps classification output so consumers can tell which
// category set and pattern table produced it. Bump on any taxonomy change.
const TaxonomyVersion = "1.0"

// Category is a legal document piece type.
type Category string

const (
	CatPeticaoInicial Category = "PETICAO_INICIAL" // initial petition
	CatContestacao    Category = "CONTESTACAO"     // defense / response
	CatReplica        Category = "REPLICA"         // rebuttal
	CatSentenca       Category = "SENTENCA"        // judicial decision
	CatDespacho       Category = "DESPACHO"        // procedural order
	CatRecurso        Category = "RECURSO"         // appeal
	CatParecerMP      Category = "PARECER_MP"      // prosecutorial opinion
	CatAtaAudiencia   Category = "ATA_AUDIENCIA"   // hearing record
	CatCertidao       Category = "CERTIDAO"        // certificate / notice
	CatDocumentoAnexo Category = "DOCUMENTO_ANEXO" // supporting attachment
	CatCapaProcesso   Category = "CAPA_PROCESSO"   // case cover sheet
	CatIndeterminado  Category = "INDETERMINADO"   // unclassifiable
)

// piecePattern describes how a category announces itself at the start of a
// page. All patterns match lowercased, accent-folded text.
type piecePattern struct {
	category Category
	priority int
	synonyms []string
	headers  []*regexp.Regexp
}

var piecePatterns = []piecePattern{
	{
		category: CatPeticaoInicial,
		priority: 10,
		synonyms: []string{"peticao inicial", "exordial", "peca vestibular", "acao de"},
		headers: []*regexp.Regexp{
			regexp.MustCompile(`^\s*peticao inicial`),
			regexp.MustCompile(`excelentissimo[a]? senhor[a]?\s+(?:doutor[a]?\s+)?jui`),
			regexp.MustCompile(`exmo\.?\s*sr\.?\s*dr\.?\s*jui`),
		},
	},
	{
		category: CatContestacao,
		priority: 9,
		synonyms: []string{"contestacao", "defesa previa", "resposta do reu"},
		headers: []*regexp.Regexp{
			regexp.MustCompile(`^\s*contestacao\b`),
			regexp.MustCompile(`apresentar\s+contestacao`),
			regexp.MustCompile(`vem\s+.{0,80}\bcontestar\b`),
		},
	},
	{
		category: CatReplica,
		priority: 8,
		synonyms: []string{"replica", "impugnacao a contestacao", "manifestacao sobre a contestacao"},
		headers: []*regexp.Regexp{
			regexp.MustCompile(`^\s*replica\b`),
			regexp.MustCompile(`impugnacao\s+a\s+contestacao`),
		},
	},
	{
		category: CatSentenca,
		priority: 10,
		synonyms: []string{"sentenca", "julgo procedente", "julgo improcedente", "julgo extinto"},
		headers: []*regexp.Regexp{
			regexp.MustCompile(`^\s*sentenca\b`),
			regexp.MustCompile(`^\s*s\s*e\s*n\s*t\s*e\s*n\s*c\s*a\b`),
		},
	},
	{
		category: CatDespacho,
		priority: 6,
		synonyms: []string{"despacho", "intime-se", "cumpra-se", "decisao interlocutoria"},
		headers: []*regexp.Regexp{
			regexp.MustCompile(`^\s*despacho\b`),
			regexp.MustCompile(`^\s*decisao\b`),
		},
	},
	{
		category: CatRecurso,
		priority: 8,
		synonyms: []string{"apelacao", "agravo de instrumento", "embargos de declaracao", "razoes recursais", "recurso"},
		headers: []*regexp.Regexp{
			regexp.MustCompile(`^\s*recurso\s+de\s+apelacao`),
			regexp.MustCompile(`^\s*apelacao\b`),
			regexp.MustCompile(`^\s*agravo\b`),
			regexp.MustCompile(`^\s*embargos\b`),
		},
	},
	{
		category: CatParecerMP,
		priority: 7,
		synonyms: []string{"parecer ministerial", "ministerio publico", "promotor de justica", "procurador de justica"},
		headers: []*regexp.Regexp{
			regexp.MustCompile(`^\s*parecer\b`),
			regexp.MustCompile(`ministerio publico`),
		},
	},
	{
		category: CatAtaAudiencia,
		priority: 7,
		synonyms: []string{"ata de audiencia", "termo de audiencia", "audiencia de instrucao", "audiencia de conciliacao"},
		headers: []*regexp.Regexp{
			regexp.MustCompile(`^\s*(?:ata|termo)\s+de\s+audiencia`),
		},
	},
	{
		category: CatCertidao,
		priority: 5,
		synonyms: []string{"certidao", "certifico", "mandado de intimacao", "mandado de citacao"},
		headers: []*regexp.Regexp{
			regexp.MustCompile(`^\s*certidao\b`),
			regexp.MustCompile(`^\s*certifico\b`),
			regexp.MustCompile(`^\s*mandado\b`),
		},
	},
	{
		category: CatDocumentoAnexo,
		priority: 3,
		synonyms: []string{"procuracao", "substabelecimento", "comprovante", "documento anexo", "anexo"},
		headers: []*regexp.Regexp{
			regexp.MustCompile(`^\s*procuracao\b`),
			regexp.MustCompile(`^\s*(?:doc|documento)\s`),
		},
	},
	{
		category: CatCapaProcesso,
		priority: 4,
		synonyms: []string{"autuacao", "distribuicao", "capa dos autos", "autos n"},
		headers: []*regexp.Regexp{
			regexp.MustCompile(`^\s*poder judiciario`),
			regexp.MustCompile(`^\s*tribunal`),
			regexp.MustCompile(`processo\s+n[ºo.]?\s*[\d.-]{10,}`),
		},
	},
}
