package intent

import "testing"

func TestIsHelpRequest(t *testing.T) {
	cases := map[string]bool{
		"Hola!":                                       true,
		"¿qué puedes hacer?":                          true,
		"dame ejemplos de consultas":                  true,
		"como va":                                     true,
		"qué pasó ayer con las cámaras de la entrada": false,
		"cuantos autos rojos se detectaron hoy":       false,
		"cuantas detecciones hubo":                    false,
	}
	for prompt, want := range cases {
		if got := IsHelpRequest(prompt); got != want {
			t.Fatalf("IsHelpRequest(%q) = %v, want %v", prompt, got, want)
		}
	}
}

func TestChartRequest(t *testing.T) {
	chart, ok := ChartRequest("compara autos rojos y azules en un Gráfico de Barras")
	if !ok || chart != ChartBar {
		t.Fatalf("ChartRequest() = %q, %v", chart, ok)
	}
	chart, ok = ChartRequest("detecciones por día, visualizar en lineas")
	if !ok || chart != ChartLine {
		t.Fatalf("ChartRequest() = %q, %v", chart, ok)
	}
	if _, ok := ChartRequest("cuantos autos hoy"); ok {
		t.Fatal("unexpected chart request")
	}
}

func TestChartTypeName(t *testing.T) {
	if ChartArea.Name() != "gráfico de área" {
		t.Fatalf("Name() = %q", ChartArea.Name())
	}
	if ChartType("pie").Name() != "pie" {
		t.Fatalf("unknown chart name = %q", ChartType("pie").Name())
	}
}
