package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/detectql/detectql/internal/schema"
	"github.com/detectql/detectql/internal/structured"
)

// Interpreter asks the model to turn a question into one structured query, or
// an array of them when the question compares several things.
type Interpreter struct {
	Completer Completer
	// DomainContext is prepended to the prompt; it describes how the tables
	// are used. Empty means DefaultDomainContext.
	DomainContext string
	MaxTokens     int
}

const DefaultDomainContext = `Eres un asistente experto en bases de datos de detección de objetos (vehículos). La base de datos que analizas registra detecciones de vehículos y sus atributos. Es fundamental que, al referirte a colores, estos se entreguen en inglés.

Ten en cuenta el siguiente contexto específico de las tablas:
- La tabla 'detections' registra las detecciones de vehículos. En ella, 'attribute_id' indica el tipo de atributo: 1 para la placa del vehículo y 2 para el color del vehículo.
- El campo 'object_id' se utiliza dos veces: una para la placa (cuando 'attribute_id' es 1) y otra para el color (cuando 'attribute_id' es 2).
- El campo 'description' contiene el color y la placa del vehículo ya que son strings.
- El campo 'accuracy' representa el porcentaje de éxito con respecto a la similitud de las placas y colores.
- La tabla 'object' puede utilizarse para consultas de análisis del sistema basados en rangos.
- Si la consulta involucra fechas, inclúyelas en el JSON en formato 'dd-mm-yyyy'. Las fechas también pueden estar en lenguaje natural (hoy, ayer); si es un rango, usa los operadores ">=" y "<=".`

func (i *Interpreter) Interpret(ctx context.Context, question string, m schema.Map, semantic schema.SemanticMap) ([]*structured.Query, error) {
	if i.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	prompt, err := i.prompt(question, m, semantic)
	if err != nil {
		return nil, err
	}
	answer, err := i.Completer.Complete(ctx, CompletionRequest{
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: floatPtr(0),
		MaxTokens:   i.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("interpret question: %w", err)
	}
	queries, err := structured.Decode(answer)
	if err != nil {
		return nil, fmt.Errorf("interpret question: %w", err)
	}
	return queries, nil
}

func (i *Interpreter) prompt(question string, m schema.Map, semantic schema.SemanticMap) (string, error) {
	schemaJSON, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	semanticJSON, err := json.MarshalIndent(semantic, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal semantic map: %w", err)
	}
	domain := i.DomainContext
	if strings.TrimSpace(domain) == "" {
		domain = DefaultDomainContext
	}

	var b strings.Builder
	b.WriteString(domain)
	b.WriteString("\n\nA continuación se proporciona el esquema de la base de datos y un mapa semántico que traduce nombres técnicos a nombres legibles.\n\n")
	b.WriteString("Esquema de la base de datos (JSON):\n")
	b.Write(schemaJSON)
	b.WriteString("\n\nMapa semántico (JSON):\n")
	b.Write(semanticJSON)
	b.WriteString("\n\nInterpreta la siguiente consulta en lenguaje natural y genera una estructura de consulta en formato JSON con los campos:\n")
	b.WriteString("- 'accion': la acción a realizar (por ejemplo 'contar', 'listar', 'promedio').\n")
	b.WriteString("- 'tabla': el nombre de la tabla a consultar.\n")
	b.WriteString("- 'filtros': un objeto con pares columna-valor que representen las condiciones de la consulta. Si una columna admite varios valores, usa una lista.\n")
	b.WriteString("- 'columna': la columna a promediar cuando la acción es 'promedio'.\n")
	b.WriteString("- Si hay fechas, inclúyelas en formato 'dd-mm-yyyy' dentro de 'filtros'.\n\n")
	b.WriteString("Si la consulta implica comparar datos (por ejemplo, cantidades entre colores o entre períodos), devuelve un arreglo JSON en el que cada elemento siga la estructura anterior.\n")
	b.WriteString("Responde solo con JSON.\n\n")
	fmt.Fprintf(&b, "Consulta: %s\n\nEstructura JSON:", strings.TrimSpace(question))
	return b.String(), nil
}
