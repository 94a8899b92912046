// Package application contém os casos de uso do rate limit por pontos e do
// limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http:
//   - Classifier.Classify decide bucket, custo e bypass a partir de um domain.Caller
//   - Service.Decide orquestra classificador + CounterStore e retorna uma domain.Decision
//   - ConcurrencyService faz acquire/timeout de vagas
package application
