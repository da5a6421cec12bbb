// Package intent recognizes requests that are not database questions, such
// as asking the assistant for help, and chart requests riding on a question.
package intent

import "strings"

type ChartType string

const (
	ChartBar  ChartType = "bar"
	ChartLine ChartType = "line"
	ChartArea ChartType = "area"
)

// Name returns the Spanish display name of the chart type.
func (c ChartType) Name() string {
	switch c {
	case ChartBar:
		return "gráfico de barras"
	case ChartLine:
		return "gráfico de líneas"
	case ChartArea:
		return "gráfico de área"
	default:
		return string(c)
	}
}

var helpKeywords = []string{
	"que haces", "qué haces", "qué puedes hacer", "que puedes hacer",
	"funcionalidades", "ayuda", "ayudame", "ayúdame", "como funciona",
	"cómo funciona", "para que sirves", "para qué sirves", "instrucciones",
	"como te uso", "cómo te uso", "ejemplos", "guía", "guia", "tutorial",
	"dime que haces", "explícame", "explicame", "capacidades", "hola",
	"eres un asistente", "asistente", "puedes ayudarme",
}

// Short questions made of a handful of words that include one of these are
// treated as help requests.
var shortQuestionWords = map[string]struct{}{"cómo": {}, "como": {}, "qué": {}}

const shortQuestionMaxWords = 5

// IsHelpRequest reports whether prompt asks what the assistant can do.
func IsHelpRequest(prompt string) bool {
	lowered := strings.ToLower(prompt)
	for _, keyword := range helpKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	words := strings.Fields(lowered)
	if len(words) >= shortQuestionMaxWords {
		return false
	}
	for _, word := range words {
		if _, ok := shortQuestionWords[word]; ok {
			return true
		}
	}
	return false
}

type chartKeyword struct {
	phrase string
	chart  ChartType
}

var chartKeywords = []chartKeyword{
	{"gráfico de barras", ChartBar},
	{"grafico de barras", ChartBar},
	{"gráfica de barras", ChartBar},
	{"grafica de barras", ChartBar},
	{"muestra en barras", ChartBar},
	{"graficar en barras", ChartBar},
	{"visualizar en barras", ChartBar},

	{"gráfico de líneas", ChartLine},
	{"grafico de lineas", ChartLine},
	{"gráfica de líneas", ChartLine},
	{"grafica de lineas", ChartLine},
	{"muestra en líneas", ChartLine},
	{"muestra en lineas", ChartLine},
	{"graficar en líneas", ChartLine},
	{"graficar en lineas", ChartLine},
	{"visualizar en líneas", ChartLine},
	{"visualizar en lineas", ChartLine},

	{"gráfico de área", ChartArea},
	{"grafico de area", ChartArea},
	{"gráfica de área", ChartArea},
	{"grafica de area", ChartArea},
	{"muestra en área", ChartArea},
	{"muestra en area", ChartArea},
	{"graficar en área", ChartArea},
	{"graficar en area", ChartArea},
	{"visualizar en área", ChartArea},
	{"visualizar en area", ChartArea},
}

// ChartRequest returns the chart type prompt asks for, if any.
func ChartRequest(prompt string) (ChartType, bool) {
	lowered := strings.ToLower(prompt)
	for _, keyword := range chartKeywords {
		if strings.Contains(lowered, keyword.phrase) {
			return keyword.chart, true
		}
	}
	return "", false
}

// HelpMessage is the fixed reply to help requests.
const HelpMessage = `# Asistente Virtual para Base de Datos de Detección de Vehículos

Soy un asistente especializado en ayudarte a extraer y analizar información de la base de datos de detección de vehículos. Puedo entender tus consultas en lenguaje natural y transformarlas en búsquedas precisas.

## ¿Qué puedo hacer por ti?

### Consultas Básicas
- **Contar vehículos**: "¿Cuántos vehículos rojos se detectaron ayer?"
- **Listar registros**: "Muestra todas las detecciones de placas que empiecen con ABC"
- **Buscar específicos**: "Encuentra el vehículo con placa XYZ-123"

### Análisis de Datos
- **Comparativas**: "Compara la cantidad de vehículos azules vs. rojos en la última semana"
- **Tendencias temporales**: "Muestra la evolución de detecciones por día del mes pasado"
- **Estadísticas**: "¿Cuál es el color de vehículo más común en las detecciones?"

### Filtros
- **Por fechas**: "Detecciones desde 10-01-2025 hasta 15-02-2025"
- **Por día**: "Vehículos detectados el pasado lunes"
- **Gráficos**: "Compara autos rojos y azules en gráfico de barras"

## Ejemplos de consultas que puedes hacer:

1. "¿Cuántos vehículos se detectaron hoy?"
2. "Muestra los 10 últimos vehículos de color negro"
3. "Compara la cantidad de detecciones de color rojo, azul y blanco"
4. "¿Qué placas se detectaron ayer?"

¿En qué te puedo ayudar hoy?
`
