package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// InitConfig lee el archivo de configuración y retorna sus valores en la variable config. En caso de error no se crea el archivo
//
// Parámetros:
//   - filePath: ubicacion donde se encuentra el archivo de configuracion
//   - config: acepta cualquier tipo de estructura
//
// Ejemplo:
//
//	type TestConfig struct {
//		Name  string `json:"name"`
//		Value int    `json:"value"`
//	}
//	func main() {
//		var testConfig TestConfig
//		config.InitConfig("./test.json", &testConfig)
//	}
func InitConfig(filePath string, config interface{}) {
	if err := LoadConfig(filePath, config); err != nil {
		panic(err)
	}
}

// LoadConfig es igual a InitConfig pero devuelve el error en lugar de hacer panic, para los módulos
// que pueden seguir con valores por defecto.
func LoadConfig(filePath string, config interface{}) error {
	if err := setupConfig(filePath, &config); err != nil {
		return fmt.Errorf("error al configurar el archivo %s: %w", filePath, err)
	}
	return nil
}

func setupConfig(filePath string, config interface{}) error {
	configFile, err := os.Open(filePath)

	if err != nil {
		return err
	}

	defer configFile.Close()

	jsonParser := json.NewDecoder(configFile)

	if err := jsonParser.Decode(&config); err != nil {
		return err
	}

	return nil
}
