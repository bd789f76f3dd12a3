package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// DoRequest es una función genérica para realizar peticiones HTTP (GET, POST, PUT, DELETE, etc.) desde un cliente.
// Retorna la respuesta del servidor. En caso que se produzca un error va a retornar el error que se produjo.
//
// Parámetros:
//   - port: el puerto al que se hará la petición
//   - ip: la IP o dominio del servidor
//   - metodo: metodo HTTP
//   - query: parte final de la URL
//   - bodies ...[]byte: (opcional) body del request (usado por ejemplo en un POST/PUT), puede pasarse vacío.
//
// Ejemplo:
//
//	func main() {
//		query := fmt.Sprintf("example?name=%s", message)
//		response, err := client.DoRequest(8080, "127.0.0.1", "GET", query, nil)
//
//		if err != nil {
//			slog.Error(fmt.Sprintf("Ocurrió un error: %v", err))
//			return
//		}
//
//		responseBody, _ := io.ReadAll(response.Body)
//		fmt.Printf("Response: %s", string(responseBody))
//	}
func DoRequest(port int, ip string, metodo string, query string, bodies ...[]byte) (*http.Response, error) {
	// Se declara un nuevo cliente
	cliente := &http.Client{}

	// Se declara la url a utilizar (depende de una ip y un puerto).
	url := fmt.Sprintf("http://%s:%d/%s", ip, port, query)

	body := ifBody(bodies...)

	// Se crea una request donde se "efectúa" el metodo (PUT / DELETE / GET / POST) hacia url, enviando el Body si lo hay
	req, err := http.NewRequest(metodo, url, body)

	// Error Handler de la construcción de la request
	if err != nil {
		slog.Error(fmt.Sprintf("error creando request a ip: %s puerto: %d", ip, port))
		return nil, err
	}

	// Se establecen los headers
	req.Header.Set("Content-Type", "application/json")

	// Se envía el request al servidor
	respuesta, err := cliente.Do(req)

	// Error handler de la request
	if err != nil {
		errorMsg := fmt.Errorf("error enviando request a ip: %s puerto: %d - %v", ip, port, err)
		slog.Error(errorMsg.Error())
		return nil, err
	}

	// Un status distinto de OK se devuelve como error junto con la respuesta, cuyo body trae el detalle.
	if respuesta.StatusCode != http.StatusOK {
		errorMsg := fmt.Errorf("Status Error: %d %s", respuesta.StatusCode, http.StatusText(respuesta.StatusCode))
		slog.Error(errorMsg.Error())
		return respuesta, errorMsg
	}

	return respuesta, nil
}

// PostJSON serializa body y lo envía por POST a query. Si la respuesta trae JSON y out no es nil,
// lo decodifica en out. Ante un status de error el body se decodifica igual, para que el llamador
// pueda leer el errno que devuelve memoria.
//
// Ejemplo:
//
//	var resp models.MmapResponse
//	err := client.PostJSON(8002, "127.0.0.1", "vm/mmap", models.MmapRequest{PID: 1, Address: 0x10000000, Length: 4096, Path: "a.txt"}, &resp)
func PostJSON(port int, ip string, query string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error serializando request a %s: %w", query, err)
	}

	respuesta, reqErr := DoRequest(port, ip, http.MethodPost, query, payload)
	if respuesta == nil {
		return reqErr
	}
	defer respuesta.Body.Close()

	if out != nil && strings.HasPrefix(respuesta.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(respuesta.Body).Decode(out); err != nil {
			return errors.Join(reqErr, fmt.Errorf("error decodificando respuesta de %s: %w", query, err))
		}
	}
	return reqErr
}

func ifBody(bodies ...[]byte) io.Reader {
	if len(bodies) == 0 {
		return nil
	}
	return bytes.NewBuffer(bodies[0])
}
